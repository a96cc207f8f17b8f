package memory

// CompareValues exposes the sort ordering used by List.
var CompareValues = compareValues

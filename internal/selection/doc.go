// Package selection extracts requested variables from an opened source
// dataset, restricting them along coordinate values and checking recorded
// units. Selection is exact-match: there is no nearest-neighbour lookup and
// no unit conversion.
package selection

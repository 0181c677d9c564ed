// Package derive evaluates derived variables: it resolves the arguments of
// a registered function against a source dataset, calls it, lays the result
// over the source's dims and attaches it under the requested name.
//
// References ("ds_input.<name>") resolve, in order, to a data variable or a
// coordinate of the selected dataset, to the index of one of its dims, or
// to a data variable of the raw source that was not requested; the latter
// is aligned to the selected coordinate values first.
package derive

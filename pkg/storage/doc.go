// Package storage manages datasets as directories of rotated record files.
//
// RotationWriter appends records and starts a new file once the current one
// holds Config.MaxRecordsPerFile records. MultiReader presents all files of
// a dataset as one ordered stream, keeping a small LRU cache of open files
// so that seeking back and forth between files does not reopen them.
//
// File names sort in creation order; Scan returns them in that order.
package storage

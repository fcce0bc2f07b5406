// Package storage manages the downloads directory.
//
// Images are named <code>.jpg. Writes go to <path>.tmp first and are renamed
// into place only after the whole body has been copied and the file closed,
// so a file under its final name is always complete. Leftover .tmp files from
// an interrupted run are removed when the Manager is created.
package storage

// Package normalisers turns raw files into document text.
//
// Each subpackage implements driven.Normaliser for one family of formats.
// Registry picks the highest-priority normaliser for a file's MIME type,
// detecting the type from the file name and content when the caller does
// not supply one.
package normalisers

// Package zipr packs filesystem paths into ZIP archives and unpacks them back, preserving relative structure and
// POSIX permission bits.
//
// Zip and Unzip are the only entry points most callers need. The wire format lives in the zipfile package; the
// compression methods live in the codec package.
package zipr

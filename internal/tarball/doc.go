// Package tarball reads pbench result tarballs and turns them into index
// actions.
//
// A tarball is an xz-compressed tar archive named <name>.tar.xz whose members
// all live below a top-level <name>/ directory, with an INI-style
// <name>/metadata.log describing the run. An md5sum file <name>.tar.xz.md5
// sits next to it. Open validates all of this in one streaming pass and
// returns errors tagged with the workitem markers, so callers can classify
// them without knowing the archive layout.
//
// Document sequences are lazy: run and table-of-contents documents come from
// the member list gathered by Open, while tool-data documents are read by
// streaming the archive a second time.
package tarball

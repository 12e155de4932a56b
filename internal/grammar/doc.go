// Package grammar parses radar file names and holds the volume-type grammar:
// the mapping strategy code -> volume number -> allowed field types. The same
// grammar filters discovered files and decides volume completeness.
package grammar

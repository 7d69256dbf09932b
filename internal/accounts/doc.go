// Package accounts matches externally supplied account names against the
// portal's dropdown roster. Spreadsheet rosters carry contact suffixes,
// numeric billing prefixes, and accented spellings that the dropdown does
// not, so matching runs on normalized business names with a substring pass
// boosted over plain similarity.
package accounts

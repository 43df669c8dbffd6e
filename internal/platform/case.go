//go:build !darwin && !windows

package platform

// CaseInsensitivePaths is true where the default filesystem ignores case
const CaseInsensitivePaths = false

// Package version carries the build version for every command, printed
// via each command's -version flag. Adapted from ingesters/version.
package version

import "fmt"

const (
	Major = 1
	Minor = 0
	Point = 0
)

func String() string {
	return fmt.Sprintf("%d.%d.%d", Major, Minor, Point)
}

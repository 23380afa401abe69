package validate

import "regexp"

// EC2 instance IDs come in two lengths: the legacy 8-hex-digit form and
// the longer 17-hex-digit form introduced in 2016. Anything else is
// rejected, including uppercase hex and IDs with surrounding garbage.
var instanceID = regexp.MustCompile(`^i-(?:[0-9a-f]{8}|[0-9a-f]{17})$`)

// InstanceID reports whether s is a syntactically valid EC2 instance ID.
func InstanceID(s string) bool {
	return instanceID.MatchString(s)
}

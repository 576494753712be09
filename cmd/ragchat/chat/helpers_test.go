package chatcmder_test

import "regexp"

func regexpAll(pattern, s string) []string {
	return regexp.MustCompile(pattern).FindAllString(s, -1)
}

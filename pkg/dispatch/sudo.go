package dispatch

import "strings"

// sudoAuthMarkers are stderr fragments sudo prints when it rejects or cannot
// obtain a password.
var sudoAuthMarkers = []string{
	"incorrect password",
	"Sorry, try again",
	"a password is required",
	"no password was provided",
}

// shellQuote wraps s in single quotes for POSIX shells.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// wrapSudo builds the privileged form of script. With a password, sudo reads
// it from stdin (-S) with an empty prompt and a fresh timestamp (-k) so the
// password is always consumed; it never appears in the command line. Without
// a password sudo runs non-interactively (-n) and fails instead of prompting.
func wrapSudo(script, user, password string) (string, []byte) {
	if password == "" {
		return "sudo -n -u " + shellQuote(user) + " -- sh -c " + shellQuote(script), nil
	}
	return "sudo -k -S -p '' -u " + shellQuote(user) + " -- sh -c " + shellQuote(script), []byte(password + "\n")
}

func isSudoAuthFailure(stderr []byte) bool {
	s := string(stderr)
	for _, m := range sudoAuthMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

package permission

import (
	"regexp"
	"strings"
)

// RiskLevel is the four-tier classification applied to a parsed shell
// command before it ever reaches the permission checker. Forbidden always
// wins over Dangerous, which always wins over Caution, which always wins
// over Safe — evaluated in that priority order against every command in a
// pipeline or chain, not just the first.
type RiskLevel int

const (
	RiskSafe RiskLevel = iota
	RiskCaution
	RiskDangerous
	RiskForbidden
)

func (r RiskLevel) String() string {
	switch r {
	case RiskSafe:
		return "safe"
	case RiskCaution:
		return "caution"
	case RiskDangerous:
		return "dangerous"
	case RiskForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// forbiddenPatterns match whole commands (Name+Args joined back into a
// single string by ClassifyCommand, or the raw input in ClassifyPipeline)
// that are never allowed to run regardless of any standing grant.
var forbiddenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+(-[a-zA-Z]*r[a-zA-Z]*f[a-zA-Z]*|-[a-zA-Z]*f[a-zA-Z]*r[a-zA-Z]*)\s+/\s*$`),
	regexp.MustCompile(`\brm\s+(-[a-zA-Z]*r[a-zA-Z]*f[a-zA-Z]*|-[a-zA-Z]*f[a-zA-Z]*r[a-zA-Z]*)\s+/\*`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`), // fork bomb
	regexp.MustCompile(`\b(curl|wget)\b.*\|\s*(sudo\s+)?(ba)?sh\b`),
	regexp.MustCompile(`\bmkfs(\.\w+)?\b`),
	regexp.MustCompile(`\bdd\b.*\bof=/dev/(sd|nvme|hd|disk)`),
	regexp.MustCompile(`>\s*/dev/(sd|nvme|hd|disk)\w*\b`),
}

// dangerousCommands mutate the system broadly enough to always warrant an
// explicit grant, even outside the forbidden patterns above.
var dangerousCommands = map[string]bool{
	"sudo": true, "su": true, "doas": true,
	"shutdown": true, "reboot": true, "halt": true,
	"dd": true, "mkfs": true, "fdisk": true, "parted": true,
	"iptables": true, "ufw": true,
	"kill": true, "pkill": true, "killall": true,
}

// exfiltrationPaths are read in one clause and piped to a network command
// in another; spotting both halves raises the whole pipeline to Dangerous.
var exfiltrationPaths = []string{
	".ssh", ".aws", ".gnupg", ".netrc", ".env", "id_rsa", "credentials",
}

var networkCommands = map[string]bool{
	"curl": true, "wget": true, "nc": true, "ncat": true, "ssh": true, "scp": true, "rsync": true,
}

// ClassifyCommand assigns a RiskLevel to a single parsed command. The
// analyzer additionally reassembles Name+Args to catch multi-token
// Forbidden patterns that span the pipeline (handled by ClassifyPipeline).
func ClassifyCommand(cmd BashCommand) RiskLevel {
	full := cmd.Name
	if len(cmd.Args) > 0 {
		full += " " + strings.Join(cmd.Args, " ")
	}
	for _, re := range forbiddenPatterns {
		if re.MatchString(full) {
			return RiskForbidden
		}
	}
	if dangerousCommands[cmd.Name] {
		return RiskDangerous
	}
	if IsDangerousCommand(cmd.Name) {
		return RiskCaution
	}
	return RiskSafe
}

// ClassifyPipeline classifies a raw command string that may contain
// multiple piped/chained commands, taking the highest risk level found and
// additionally detecting the exfiltration pattern of reading a sensitive
// path and piping it to a network command.
func ClassifyPipeline(raw string) RiskLevel {
	cmds, err := ParseBashCommand(raw)
	if err != nil {
		// Unparseable input is treated conservatively.
		return RiskDangerous
	}

	highest := RiskSafe
	sawSensitiveRead := false
	sawNetworkCmd := false

	for _, cmd := range cmds {
		if lvl := ClassifyCommand(cmd); lvl > highest {
			highest = lvl
		}
		for _, arg := range cmd.Args {
			for _, s := range exfiltrationPaths {
				if strings.Contains(arg, s) {
					sawSensitiveRead = true
				}
			}
		}
		if networkCommands[cmd.Name] {
			sawNetworkCmd = true
		}
	}

	if sawSensitiveRead && sawNetworkCmd && highest < RiskDangerous {
		highest = RiskDangerous
	}

	for _, re := range forbiddenPatterns {
		if re.MatchString(raw) {
			return RiskForbidden
		}
	}

	return highest
}

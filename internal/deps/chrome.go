package deps

// chromeCandidates is the lookup order used when no chrome_path is
// configured. It covers the distro packages and the headless-shell image.
var chromeCandidates = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"headless-shell",
}

// ChromeRequirement is the browser launched for browser-mode channels. A
// configured path wins over the candidate search.
func ChromeRequirement(configured string) Requirement {
	return Requirement{
		Name:        "Chrome",
		Command:     configured,
		Candidates:  append([]string(nil), chromeCandidates...),
		Description: "Required for browser-mode channel capture",
	}
}

// ResolveChrome reports the Chrome binary the capture adapter will launch.
func ResolveChrome(configured string) Status {
	return Resolve(ChromeRequirement(configured))
}

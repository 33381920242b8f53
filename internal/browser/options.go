// internal/browser/options.go
package browser

import (
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/whatsapp-chatter/internal/config"
)

// allocatorFlags computes the Chrome command line switches for cfg.
// Kept separate from AllocatorOptions so the switch set can be inspected in tests.
func allocatorFlags(cfg config.BrowserConfig) (map[string]interface{}, error) {
	flags := map[string]interface{}{
		"no-sandbox":               true,
		"disable-gpu":              true,
		"no-first-run":             true,
		"no-default-browser-check": true,
		// Same as chromedp's defaults: no automation infobar.
		"enable-automation": false,
	}

	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		flags["window-size"] = fmt.Sprintf("%d,%d", cfg.WindowWidth, cfg.WindowHeight)
	}

	if cfg.Headless {
		flags["headless"] = true
		flags["hide-scrollbars"] = true
		flags["mute-audio"] = true
	}

	if dir := strings.TrimSpace(cfg.UserDataDir); dir != "" {
		expanded, err := homedir.Expand(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to expand user data dir '%s': %w", dir, err)
		}
		flags["user-data-dir"] = expanded
	}

	// Extra args accept both "--flag" and "--flag=value".
	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		key, value, found := strings.Cut(arg, "=")
		if found {
			flags[key] = value
		} else {
			flags[key] = true
		}
	}

	return flags, nil
}

// cmdHook returns the process hook for cfg. Headless browsers keep chromedp's
// default, which kills Chrome with the parent on Linux; a visible browser is
// left open for the operator after the run.
func cmdHook(cfg config.BrowserConfig) func(*exec.Cmd) {
	if cfg.Headless {
		return nil
	}
	return detachBrowser
}

// AllocatorOptions builds the exec allocator options used by Launch.
func AllocatorOptions(cfg config.BrowserConfig) ([]chromedp.ExecAllocatorOption, error) {
	flags, err := allocatorFlags(cfg)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(flags))
	for k := range flags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	opts := make([]chromedp.ExecAllocatorOption, 0, len(keys)+2)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if hook := cmdHook(cfg); hook != nil {
		opts = append(opts, chromedp.ModifyCmdFunc(hook))
	}
	for _, k := range keys {
		opts = append(opts, chromedp.Flag(k, flags[k]))
	}
	return opts, nil
}

// SPDX-License-Identifier: Apache-2.0
package toolchain

import (
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// Env is the explicit environment handed to every child process. Nothing in
// the pipeline mutates the process environment; installing a toolchain
// returns a new Env instead.
type Env []string

// CurrentEnv snapshots the process environment.
func CurrentEnv() Env {
	return Env(os.Environ())
}

// Get returns the value of key, or "" when it is unset.
func (e Env) Get(key string) string {
	v, _ := e.Lookup(key)
	return v
}

// Lookup returns the value of key and whether it is set.
func (e Env) Lookup(key string) (string, bool) {
	prefix := key + "="
	// Later entries win, matching how exec resolves duplicates.
	for i := len(e) - 1; i >= 0; i-- {
		if strings.HasPrefix(e[i], prefix) {
			return strings.TrimPrefix(e[i], prefix), true
		}
	}
	return "", false
}

// With returns a copy of e with key set to value.
func (e Env) With(key, value string) Env {
	prefix := key + "="
	out := make(Env, 0, len(e)+1)
	for _, kv := range e {
		if !strings.HasPrefix(kv, prefix) {
			out = append(out, kv)
		}
	}
	return append(out, prefix+value)
}

// PrependPath returns a copy of e with dir placed first on PATH.
func (e Env) PrependPath(dir string) Env {
	path := e.Get("PATH")
	if path == "" {
		return e.With("PATH", dir)
	}
	return e.With("PATH", dir+string(os.PathListSeparator)+path)
}

// LookPath resolves file against the PATH of e rather than the process
// PATH. Names containing a separator are checked as given.
func (e Env) LookPath(file string) (string, error) {
	if strings.ContainsRune(file, filepath.Separator) || strings.ContainsRune(file, '/') {
		if err := executable(file); err != nil {
			return "", &exec.Error{Name: file, Err: err}
		}
		return file, nil
	}
	for _, dir := range filepath.SplitList(e.Get("PATH")) {
		if dir == "" {
			continue
		}
		for _, candidate := range candidates(filepath.Join(dir, file)) {
			if executable(candidate) == nil {
				return candidate, nil
			}
		}
	}
	return "", &exec.Error{Name: file, Err: exec.ErrNotFound}
}

func candidates(path string) []string {
	if runtime.GOOS != "windows" {
		return []string{path}
	}
	return []string{path + ".exe", path}
}

func executable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fs.ErrPermission
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0 {
		return fs.ErrPermission
	}
	return nil
}

// LogTrace logs the environment at trace level, redacting sensitive values.
func (e Env) LogTrace(logger hclog.Logger) {
	if !logger.IsTrace() {
		return
	}
	logger.Trace("🌍 Environment passed to subprocess:")
	for _, kv := range e {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if isSensitiveKey(key) {
			value = "***"
		}
		logger.Trace("  →", "key", key, "value", value)
	}
}

func isSensitiveKey(key string) bool {
	switch key {
	case "SSH_AUTH_SOCK", "AWS_SECRET_ACCESS_KEY", "GITHUB_TOKEN", "HF_TOKEN", "OPENAI_API_KEY", "PASSWORD":
		return true
	}
	upper := strings.ToUpper(key)
	return strings.HasSuffix(upper, "_TOKEN") || strings.HasSuffix(upper, "_SECRET")
}

// IsNotFound reports whether err means the command could not be located.
func IsNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}

//go:build darwin || linux

// Shared utilities for purego-based native library loading.

package playback

import (
	"os"
	"path/filepath"
	"runtime"
	"unsafe"
)

// goStringFromPtr converts a C string pointer to a Go string.
func goStringFromPtr(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	p := unsafe.Pointer(ptr)
	var length int
	for {
		if *(*byte)(unsafe.Add(p, length)) == 0 {
			break
		}
		length++
		if length > 1024 { // Safety limit
			break
		}
	}
	if length == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(p), length))
}

// goStringsFromList converts a C list of NUL-separated strings ending in an
// empty string (as returned by alcGetString enumerations).
func goStringsFromList(ptr uintptr) []string {
	if ptr == 0 {
		return nil
	}
	var out []string
	for {
		s := goStringFromPtr(ptr)
		if s == "" {
			return out
		}
		out = append(out, s)
		ptr += uintptr(len(s) + 1)
	}
}

// findModuleRoot walks up the directory tree from the current working directory
// to find the module root (directory containing go.mod).
func findModuleRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// nativeLibPaths lists candidate locations for a shared library, most
// specific first: the envVar override, STREAM_SDK_LIB_PATH, next to the
// executable, the module's build directory, then the given system names.
func nativeLibPaths(envVar string, libNames []string, system []string) []string {
	var paths []string

	if envPath := os.Getenv(envVar); envPath != "" {
		paths = append(paths, envPath)
	}
	sdkPath := os.Getenv("STREAM_SDK_LIB_PATH")

	var exeDir string
	if exe, err := os.Executable(); err == nil {
		exeDir = filepath.Dir(exe)
	}
	root := findModuleRoot()

	for _, name := range libNames {
		if sdkPath != "" {
			paths = append(paths, filepath.Join(sdkPath, name))
		}
		if exeDir != "" {
			paths = append(paths,
				filepath.Join(exeDir, name),
				filepath.Join(exeDir, "..", "lib", name),
			)
		}
		if root != "" {
			paths = append(paths, filepath.Join(root, "build", name))
		}
	}

	paths = append(paths, system...)
	if runtime.GOOS == "linux" {
		for _, name := range libNames {
			paths = append(paths, filepath.Join("/usr/local/lib", name), filepath.Join("/usr/lib", name))
		}
	}
	return paths
}

// Copyright 2026 The TreeCrowns Authors. SPDX-License-Identifier: Apache-2.0

// Package fsutil contains the file system helpers shared by the splitter, the dataset and the tools.
package fsutil

import (
	"io"
	"os"
	"os/user"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// FileExists returns whether the file or directory exists or an error if something went wrong in the filesystem.
func FileExists(filePath string) (bool, error) {
	_, err := os.Stat(filePath)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, errors.Wrapf(err, "failed to FileExists(%q)", filePath)
}

// ReplaceTildeInDir by the user's home directory. Returns dir if it doesn't start with "~".
//
// It returns an error if `dir` has an unknown user (e.g: `~unknown/...`).
func ReplaceTildeInDir(dir string) (string, error) {
	if len(dir) == 0 || dir[0] != '~' {
		return dir, nil
	}
	var userName string
	if dir != "~" && !strings.HasPrefix(dir, "~/") {
		sepIdx := strings.IndexRune(dir, '/')
		if sepIdx == -1 {
			userName = dir[1:]
		} else {
			userName = dir[1:sepIdx]
		}
	}
	var usr *user.User
	var err error
	if userName == "" {
		usr, err = user.Current()
	} else {
		usr, err = user.Lookup(userName)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to lookup home directory for user in path %q", dir)
	}
	return path.Join(usr.HomeDir, dir[1+len(userName):]), nil
}

// FilesWithSuffix lists the regular files (or symlinks) directly under dir whose names end with suffix,
// sorted lexicographically. Sub-directories are never included.
func FilesWithSuffix(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list directory %q", dir)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// ErrSameFile is returned by CopyFile when the source and destination are the same file.
var ErrSameFile = errors.New("source and destination are the same file")

// CopyFile copies srcPath to dstPath, preserving the permission bits of the source.
// An existing dstPath is truncated. It returns the number of bytes copied.
//
// It fails with ErrSameFile, leaving the file untouched, if dstPath is srcPath (or a link to it).
func CopyFile(srcPath, dstPath string) (int64, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to open %q for copying", srcPath)
	}
	defer func() { _ = src.Close() }()
	info, err := src.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "failed to stat %q", srcPath)
	}
	dstInfo, err := os.Stat(dstPath)
	if err == nil && os.SameFile(info, dstInfo) {
		return 0, errors.Wrapf(ErrSameFile, "failed copying %q to %q", srcPath, dstPath)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, errors.Wrapf(err, "failed to stat %q", dstPath)
	}
	dst, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return 0, errors.Wrapf(err, "failed to create %q", dstPath)
	}
	n, err := io.Copy(dst, src)
	if err != nil {
		_ = dst.Close()
		return n, errors.Wrapf(err, "failed copying %q to %q", srcPath, dstPath)
	}
	if err = dst.Close(); err != nil {
		return n, errors.Wrapf(err, "failed to close %q", dstPath)
	}
	return n, nil
}

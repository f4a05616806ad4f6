package vhd

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/vorteil/vhd-tools/pkg/storage"
)

// AliasSuffix names files holding the path of another image.
const AliasSuffix = ".alias.vhd"

var ErrAliasChain = errors.New("an alias may not point to another alias")

// OpenVhd opens the image at path, selecting the representation from the
// path and from what the handler finds there: aliases by suffix, a regular
// file as File, a directory as Directory.
func OpenVhd(ctx context.Context, h storage.Handler, p string) (Reader, error) {

	if strings.HasSuffix(p, AliasSuffix) {
		return OpenAlias(ctx, h, p)
	}

	res, err := h.OpenFile(ctx, p)
	if err != nil {
		return nil, err
	}

	var r Reader
	switch res.Kind {
	case storage.RegularFile:
		r, err = openFile(res.File, p)
	case storage.IsDirectory:
		r, err = OpenDirectory(ctx, h, p)
	default:
		err = fmt.Errorf("cannot open %s: unexpected %s", p, res.Kind)
	}
	if err != nil {
		return nil, err
	}

	return r, nil
}

// Create creates an image at path, as a Directory if directory is set and
// as a File otherwise.
func Create(ctx context.Context, h storage.Handler, p string, directory bool) (Writer, error) {
	var w Writer
	var err error
	if directory {
		w, err = CreateDirectory(ctx, h, p)
	} else {
		w, err = CreateFile(ctx, h, p)
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// ResolveAlias returns the path of the image an alias file points at.
// Relative targets are resolved against the directory of the alias.
func ResolveAlias(ctx context.Context, h storage.Handler, aliasPath string) (string, error) {

	if !strings.HasSuffix(aliasPath, AliasSuffix) {
		return "", fmt.Errorf("%s does not end with %s", aliasPath, AliasSuffix)
	}

	data, err := h.ReadFile(ctx, aliasPath)
	if err != nil {
		return "", err
	}

	target := strings.TrimSpace(string(data))
	if target == "" {
		return "", fmt.Errorf("alias %s is empty", aliasPath)
	}

	if !path.IsAbs(target) {
		target = path.Join(path.Dir(aliasPath), target)
	}

	if strings.HasSuffix(target, AliasSuffix) {
		return "", fmt.Errorf("alias %s: %w", aliasPath, ErrAliasChain)
	}

	return target, nil
}

// OpenAlias opens the image an alias file points at.
func OpenAlias(ctx context.Context, h storage.Handler, aliasPath string) (Reader, error) {

	target, err := ResolveAlias(ctx, h, aliasPath)
	if err != nil {
		return nil, err
	}

	return OpenVhd(ctx, h, target)
}

// WriteAlias stores an alias at aliasPath pointing at target.
func WriteAlias(ctx context.Context, h storage.Handler, aliasPath, target string) error {

	if !strings.HasSuffix(aliasPath, AliasSuffix) {
		return fmt.Errorf("%s does not end with %s", aliasPath, AliasSuffix)
	}
	if strings.HasSuffix(target, AliasSuffix) {
		return ErrAliasChain
	}

	return h.WriteFile(ctx, aliasPath, []byte(target))
}

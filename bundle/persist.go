// Copyright 2023 Contributors to the Veraison project.
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Persist writes data to path, replacing any previous content. A temporary
// file next to path is written and synced first, then renamed over path, so
// an interrupted run never leaves a truncated artifact at path.
func Persist(data []byte, path string) (err error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", base, uuid.NewString()))

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("creating temporary artifact: %w", err)
	}

	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		return fmt.Errorf("writing temporary artifact: %w", err)
	}

	if err = f.Sync(); err != nil {
		return fmt.Errorf("syncing temporary artifact: %w", err)
	}

	if err = f.Close(); err != nil {
		return fmt.Errorf("closing temporary artifact: %w", err)
	}

	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("moving artifact into place: %w", err)
	}

	return nil
}

package core

import (
	"fmt"
	"sort"

	pep440 "github.com/aquasecurity/go-pep440-version"

	"nwbio/internal/errs"
)

// LatestVersion returns the highest of versions.
func LatestVersion(versions []string) (string, error) {
	if len(versions) == 0 {
		return "", errs.UnknownType("no versions available")
	}
	sorted, err := sortVersions(versions)
	if err != nil {
		return "", err
	}
	return sorted[len(sorted)-1], nil
}

// CheckCompatible reports whether data written under schema version
// source can be carried to dest: same major version, not older.
func CheckCompatible(source string, dest string) error {
	spec, err := compatibleSpecifiers(source)
	if err != nil {
		return err
	}
	parsed, err := pep440.Parse(dest)
	if err != nil {
		return errs.Wrap(errs.KindFormat, err, "invalid schema version "+dest)
	}
	if !spec.Check(parsed) {
		return errs.NamespaceConflict("schema version %s is not compatible with %s", dest, source)
	}
	return nil
}

// CompatibleVersion returns the newest of available that source can be
// upgraded to.
func CompatibleVersion(source string, available []string) (string, error) {
	sorted, err := sortVersions(available)
	if err != nil {
		return "", err
	}
	for i := len(sorted) - 1; i >= 0; i-- {
		if CheckCompatible(source, sorted[i]) == nil {
			return sorted[i], nil
		}
	}
	return "", errs.NamespaceConflict("no available schema version is compatible with %s", source)
}

func compatibleSpecifiers(source string) (pep440.Specifiers, error) {
	parsed, err := pep440.Parse(source)
	if err != nil {
		return pep440.Specifiers{}, errs.Wrap(errs.KindFormat, err, "invalid schema version "+source)
	}
	var major int
	if _, err := fmt.Sscanf(parsed.String(), "%d", &major); err != nil {
		return pep440.Specifiers{}, errs.Wrap(errs.KindFormat, err, "invalid schema version "+source)
	}
	spec, err := pep440.NewSpecifiers(fmt.Sprintf(">= %s, < %d", source, major+1))
	if err != nil {
		return pep440.Specifiers{}, errs.Wrap(errs.KindFormat, err, "invalid schema version "+source)
	}
	return spec, nil
}

func sortVersions(versions []string) ([]string, error) {
	parsed := make([]pep440.Version, len(versions))
	for i, v := range versions {
		p, err := pep440.Parse(v)
		if err != nil {
			return nil, errs.Wrap(errs.KindFormat, err, "invalid schema version "+v)
		}
		parsed[i] = p
	}
	idx := make([]int, len(versions))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		return parsed[idx[a]].Compare(parsed[idx[b]]) < 0
	})
	out := make([]string, len(versions))
	for i, j := range idx {
		out[i] = versions[j]
	}
	return out, nil
}

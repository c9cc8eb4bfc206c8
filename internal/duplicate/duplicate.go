// Package duplicate implements DuplicateDetector's two independent
// equivalence passes over the full metadata map: a hash pass (exact-content
// duplicates) and a title pass (same rename-rule output, different
// content). Grouping strategy is screener.go's group-by-key-then-filter
// shape, generalized from dev+inode candidate groups to hash/title keys.
package duplicate

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/mediacat/mediacat/internal/model"
	"github.com/mediacat/mediacat/internal/renamerule"
)

// Result holds both passes' output groups.
type Result struct {
	HashGroups  []model.DuplicateGroup
	TitleGroups []model.DuplicateGroup
}

// Detect runs the hash pass and the title pass concurrently over files (a
// path -> MetaRecord map) and returns both group lists. Files without a
// derivable key for a given pass (no SHA-256 digest; no renamerule output)
// are silently skipped from that pass.
func Detect(files map[string]*model.MetaRecord) Result {
	var wg sync.WaitGroup
	var hashGroups, titleGroups []model.DuplicateGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		hashGroups = hashPass(files)
	}()
	go func() {
		defer wg.Done()
		titleGroups = titlePass(files)
	}()
	wg.Wait()

	return Result{HashGroups: hashGroups, TitleGroups: titleGroups}
}

// hashPass groups files sharing a canonical SHA-256 digest. Within a group,
// paths are ordered alphabetically; the first is kept, the rest are
// reported as duplicates of it. The group's virtual path is the first
// path's rename-rule output.
func hashPass(files map[string]*model.MetaRecord) []model.DuplicateGroup {
	byHash := make(map[string][]string)
	for path, m := range files {
		d, ok := m.Digests[model.AlgoSHA256]
		if !ok || d.Value == "" {
			continue
		}
		byHash[d.Value] = append(byHash[d.Value], path)
	}

	var groups []model.DuplicateGroup
	for hash, paths := range byHash {
		if len(paths) < 2 {
			continue
		}
		sort.Strings(paths)
		vp, err := renamerule.Apply(files[paths[0]])
		if err != nil {
			continue
		}
		groups = append(groups, model.DuplicateGroup{
			Key:         hash,
			Files:       paths,
			VirtualPath: vp,
		})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return groups
}

// titlePass groups files whose rename-rule output collides case-insensitively.
// The first path (alphabetically) keeps the canonical virtual path; every
// subsequent member is assigned an incrementing Version ("V2", "V3", ...)
// and, unless it is a subtitle, the Extra flag is set so it is hidden from
// the primary VFS listing. Subtitles stay visible: a multi-language
// subtitle stack for one episode must not be demoted.
func titlePass(files map[string]*model.MetaRecord) []model.DuplicateGroup {
	byTitle := make(map[string][]string)
	for path, m := range files {
		vp, err := renamerule.Apply(m)
		if err != nil || vp == "" {
			continue
		}
		key := strings.ToLower(vp)
		byTitle[key] = append(byTitle[key], path)
	}

	var groups []model.DuplicateGroup
	for key, paths := range byTitle {
		if len(paths) < 2 {
			continue
		}
		sort.Strings(paths)
		for i, path := range paths {
			if i == 0 {
				continue
			}
			m := files[path]
			m.Version = versionLabel(i + 1)
			if m.Kind != model.KindSubtitle {
				m.Extra = true
			}
		}
		groups = append(groups, model.DuplicateGroup{
			Key:         key,
			Files:       paths,
			VirtualPath: key,
		})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return groups
}

// versionLabel renders "V2", "V3", ... for the nth (1-indexed) member of a
// title group; n=1 is the canonical member and never receives a label.
func versionLabel(n int) string {
	return "V" + strconv.Itoa(n)
}

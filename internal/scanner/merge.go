package scanner

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/voiceapp/voice-scanner/internal/container"
	"github.com/voiceapp/voice-scanner/internal/domain"
	"github.com/voiceapp/voice-scanner/internal/id"
	"github.com/voiceapp/voice-scanner/internal/store"
)

// planChapters decides for every candidate file whether its stored chapter
// can be reused. Files neither found by id nor recognized as a rename by
// their file key are marked for parsing.
func planChapters(snapshot map[string]*domain.Chapter, candidates []Candidate) [][]*fileState {
	discovered := make(map[string]bool)
	for _, c := range candidates {
		for _, f := range c.Files {
			discovered[id.Chapter(c.RootID, f.RelPath)] = true
		}
	}

	byFileKey := make(map[string][]*domain.Chapter)
	for _, ch := range snapshot {
		if ch.FileKey != "" && !discovered[ch.ID] {
			byFileKey[ch.FileKey] = append(byFileKey[ch.FileKey], ch)
		}
	}
	for _, chs := range byFileKey {
		slices.SortFunc(chs, func(a, b *domain.Chapter) int { return strings.Compare(a.ID, b.ID) })
	}
	renamed := make(map[string]bool)

	plans := make([][]*fileState, len(candidates))
	for i, c := range candidates {
		states := make([]*fileState, len(c.Files))
		for j, f := range c.Files {
			chID := id.Chapter(c.RootID, f.RelPath)
			st := &fileState{file: f}
			states[j] = st

			if ex, ok := snapshot[chID]; ok && ex.Reusable(f.File.LastModified, f.File.Size) {
				st.chapter = relocate(ex, chID, f)
				continue
			}
			if old := renameSource(byFileKey[f.File.FileKey], renamed, f); old != nil {
				renamed[old.ID] = true
				st.chapter = relocate(old, chID, f)
				st.renamedFrom = old.ID
				continue
			}
			st.parse = true
		}
		plans[i] = states
	}
	return plans
}

// renameSource finds the stored chapter a moved file was parsed as.
func renameSource(chapters []*domain.Chapter, taken map[string]bool, f WalkResult) *domain.Chapter {
	if f.File.FileKey == "" {
		return nil
	}
	for _, ch := range chapters {
		if !taken[ch.ID] && ch.Reusable(f.File.LastModified, f.File.Size) {
			return ch
		}
	}
	return nil
}

// relocate copies a stored chapter to the id and location of f.
func relocate(ch *domain.Chapter, chID string, f WalkResult) *domain.Chapter {
	c := *ch
	c.ID = chID
	c.URI = f.File.URI
	c.FileKey = f.File.FileKey
	return &c
}

// chapterFromMeta builds the chapter of a freshly parsed file.
func chapterFromMeta(chID string, f WalkResult, meta *container.Metadata) *domain.Chapter {
	name := meta.Title
	if name == "" {
		name = trimExt(f.File.Name)
	}
	return &domain.Chapter{
		ID:               chID,
		Name:             name,
		URI:              f.File.URI,
		FileKey:          f.File.FileKey,
		FileLastModified: f.File.LastModified,
		FileSize:         f.File.Size,
		DurationMs:       meta.DurationMs,
		Marks:            meta.Marks,
		Degraded:         meta.Degraded,
	}
}

// merger folds the planned candidates into the stored book contents and
// collects the resulting changes into one batch.
type merger struct {
	now         time.Time
	snapshot    map[string]*domain.Chapter
	existing    map[string]*domain.BookContent
	byChapter   map[string]string
	claimed     map[string]bool
	failedRoots map[string]bool
	final       map[string]*domain.BookContent
	batch       *store.Batch
	result      *ScanResult
}

func newMerger(now time.Time, snapshot map[string]*domain.Chapter, contents []*domain.BookContent, failedRoots map[string]bool, result *ScanResult) *merger {
	m := &merger{
		now:         now,
		snapshot:    snapshot,
		existing:    make(map[string]*domain.BookContent, len(contents)),
		byChapter:   make(map[string]string),
		claimed:     make(map[string]bool),
		failedRoots: failedRoots,
		final:       make(map[string]*domain.BookContent, len(contents)),
		batch:       &store.Batch{},
		result:      result,
	}
	for _, bc := range contents {
		m.existing[bc.ID] = bc
		m.final[bc.ID] = bc
		for _, chID := range bc.Chapters {
			if _, taken := m.byChapter[chID]; !taken {
				m.byChapter[chID] = bc.ID
			}
		}
	}
	return m
}

// merge reconciles every candidate, deactivates the books nobody claimed
// and prunes chapters no book references any more.
func (m *merger) merge(candidates []Candidate, plans [][]*fileState) *store.Batch {
	// Candidates keeping their derived id claim first so a renamed book
	// cannot take over a book that is still in place.
	prev := make([]*domain.BookContent, len(candidates))
	for i, c := range candidates {
		bookID := id.Book(c.RootID, c.Key)
		if bc, ok := m.existing[bookID]; ok {
			prev[i] = bc
			m.claimed[bookID] = true
		}
	}
	for i, c := range candidates {
		if prev[i] == nil {
			prev[i] = m.adopt(c, plans[i])
		}
	}

	for i, c := range candidates {
		m.mergeCandidate(c, plans[i], prev[i])
	}

	for _, bcID := range slices.Sorted(maps.Keys(m.existing)) {
		bc := m.existing[bcID]
		if m.claimed[bc.ID] || !bc.IsActive || m.failedRoots[bc.RootID] {
			continue
		}
		next := *bc
		next.IsActive = false
		m.put(&next)
		m.result.Deactivated++
		m.result.Changed = append(m.result.Changed, bc.ID)
	}

	m.prune()
	return m.batch
}

// adopt finds the stored book a moved candidate used to be, through the
// chapters its files were stored as.
func (m *merger) adopt(c Candidate, states []*fileState) *domain.BookContent {
	for _, st := range states {
		for _, chID := range []string{st.renamedFrom, st.chapterID(c)} {
			bcID, ok := m.byChapter[chID]
			if chID == "" || !ok || m.claimed[bcID] {
				continue
			}
			if bc := m.existing[bcID]; bc.RootID == c.RootID {
				m.claimed[bcID] = true
				return bc
			}
		}
	}
	return nil
}

func (m *merger) mergeCandidate(c Candidate, states []*fileState, prev *domain.BookContent) {
	chapterIDs := make([]string, len(states))
	renames := make(map[string]string)
	var title, author string
	for i, st := range states {
		chapterIDs[i] = st.chapter.ID
		if st.renamedFrom != "" {
			renames[st.renamedFrom] = st.chapter.ID
		}
		if st.meta != nil {
			title = firstNonEmpty(title, st.meta.Album)
			author = firstNonEmpty(author, st.meta.Artist)
		}
		if ex, ok := m.snapshot[st.chapter.ID]; !ok || !ex.Equal(st.chapter) {
			m.batch.UpsertChapter(st.chapter)
		}
	}

	next := &domain.BookContent{
		ID:       id.Book(c.RootID, c.Key),
		RootID:   c.RootID,
		URI:      c.URI,
		Name:     firstNonEmpty(title, c.Name),
		Author:   author,
		Chapters: chapterIDs,
		IsActive: true,
		AddedAt:  m.now,
	}

	if prev != nil {
		next.ID = prev.ID
		next.AddedAt = prev.AddedAt
		// Tags are only known for files parsed in this pass.
		if title == "" {
			next.Name = prev.Name
		}
		if author == "" {
			next.Author = prev.Author
		}
		current := prev.CurrentChapter
		if to, ok := renames[current]; ok {
			current = to
		}
		if slices.Contains(chapterIDs, current) {
			next.CurrentChapter = current
			next.PositionInChapter = clampPosition(prev.PositionInChapter, states, current)
		}
	}
	if next.CurrentChapter == "" {
		next.CurrentChapter = chapterIDs[0]
		next.PositionInChapter = 0
	}

	switch {
	case prev == nil:
		m.result.Added++
	case !prev.Equal(next):
		m.result.Updated++
	default:
		return
	}
	m.put(next)
	m.result.Changed = append(m.result.Changed, next.ID)
}

func (m *merger) put(bc *domain.BookContent) {
	m.final[bc.ID] = bc
	m.batch.UpsertContent(bc)
}

// prune deletes stored chapters that no book references after the merge.
func (m *merger) prune() {
	referenced := make(map[string]bool)
	for _, bc := range m.final {
		for _, chID := range bc.Chapters {
			referenced[chID] = true
		}
	}
	for _, chID := range slices.Sorted(maps.Keys(m.snapshot)) {
		if !referenced[chID] {
			m.batch.DeleteChapter(chID)
			m.result.Pruned++
		}
	}
}

// clampPosition keeps position inside the current chapter when the
// chapter's duration is known.
func clampPosition(position uint64, states []*fileState, current string) uint64 {
	for _, st := range states {
		if st.chapter.ID != current {
			continue
		}
		if d := st.chapter.DurationMs; d > 0 && position >= d {
			return d - 1
		}
	}
	return position
}

func (st *fileState) chapterID(c Candidate) string {
	if st.chapter != nil {
		return st.chapter.ID
	}
	return id.Chapter(c.RootID, st.file.RelPath)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package replay

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/replay/domain"
)

// MarkerStore owns the bookmarks, annotations, and segments attached to
// one timeline. Like Machine it carries no locking; the owning Session
// serializes access. Listing order is creation order.
type MarkerStore struct {
	timeline    *domain.Timeline
	bookmarks   map[string]*domain.Bookmark
	annotations map[string]*domain.Annotation
	segments    map[string]*domain.Segment

	bookmarkOrder   []string
	annotationOrder []string
	segmentOrder    []string
}

// NewMarkerStore creates an empty marker store for a timeline.
func NewMarkerStore(tl *domain.Timeline) *MarkerStore {
	return &MarkerStore{
		timeline:    tl,
		bookmarks:   make(map[string]*domain.Bookmark),
		annotations: make(map[string]*domain.Annotation),
		segments:    make(map[string]*domain.Segment),
	}
}

// AddBookmark resolves the anchor to a concrete timeline index and stores
// the bookmark. An explicit index is range-checked; a raw timestamp
// resolves to the nearest event, ties broken toward the earlier index.
func (ms *MarkerStore) AddBookmark(spec domain.BookmarkSpec) (*domain.Bookmark, error) {
	index, err := ms.resolveBookmarkIndex(spec.Index, spec.Ts)
	if err != nil {
		return nil, err
	}

	bm := &domain.Bookmark{
		BookmarkID:  "bm_" + uuid.New().String()[:8],
		Index:       index,
		Title:       spec.Title,
		Description: spec.Description,
		Tags:        spec.Tags,
		CreatedAt:   time.Now(),
	}
	ms.bookmarks[bm.BookmarkID] = bm
	ms.bookmarkOrder = append(ms.bookmarkOrder, bm.BookmarkID)
	return bm, nil
}

// GetBookmark returns a bookmark by id.
func (ms *MarkerStore) GetBookmark(id string) (*domain.Bookmark, error) {
	bm, ok := ms.bookmarks[id]
	if !ok {
		return nil, fmt.Errorf("bookmark %s: %w", id, domain.ErrNotFound)
	}
	return bm, nil
}

// UpdateBookmark applies the non-nil fields of the patch.
func (ms *MarkerStore) UpdateBookmark(id string, patch domain.BookmarkPatch) (*domain.Bookmark, error) {
	bm, ok := ms.bookmarks[id]
	if !ok {
		return nil, fmt.Errorf("bookmark %s: %w", id, domain.ErrNotFound)
	}
	if patch.Index != nil || patch.Ts != nil {
		index, err := ms.resolveBookmarkIndex(patch.Index, patch.Ts)
		if err != nil {
			return nil, err
		}
		bm.Index = index
	}
	if patch.Title != nil {
		bm.Title = *patch.Title
	}
	if patch.Description != nil {
		bm.Description = *patch.Description
	}
	if patch.Tags != nil {
		bm.Tags = *patch.Tags
	}
	return bm, nil
}

// RemoveBookmark deletes a bookmark by id.
func (ms *MarkerStore) RemoveBookmark(id string) error {
	if _, ok := ms.bookmarks[id]; !ok {
		return fmt.Errorf("bookmark %s: %w", id, domain.ErrNotFound)
	}
	delete(ms.bookmarks, id)
	ms.bookmarkOrder = removeID(ms.bookmarkOrder, id)
	return nil
}

// AddAnnotation validates the timestamp falls within the timeline span
// and stores the annotation.
func (ms *MarkerStore) AddAnnotation(spec domain.AnnotationSpec) (*domain.Annotation, error) {
	if err := ms.checkSpan(spec.Ts); err != nil {
		return nil, err
	}
	now := time.Now()
	an := &domain.Annotation{
		AnnotationID: "an_" + uuid.New().String()[:8],
		Ts:           spec.Ts,
		Content:      spec.Content,
		Author:       spec.Author,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	ms.annotations[an.AnnotationID] = an
	ms.annotationOrder = append(ms.annotationOrder, an.AnnotationID)
	return an, nil
}

// UpdateAnnotation applies the non-nil fields of the patch. Last writer
// wins on concurrent edits.
func (ms *MarkerStore) UpdateAnnotation(id string, patch domain.AnnotationPatch) (*domain.Annotation, error) {
	an, ok := ms.annotations[id]
	if !ok {
		return nil, fmt.Errorf("annotation %s: %w", id, domain.ErrNotFound)
	}
	if patch.Ts != nil {
		if err := ms.checkSpan(*patch.Ts); err != nil {
			return nil, err
		}
		an.Ts = *patch.Ts
	}
	if patch.Content != nil {
		an.Content = *patch.Content
	}
	if patch.Author != nil {
		an.Author = *patch.Author
	}
	an.UpdatedAt = time.Now()
	return an, nil
}

// RemoveAnnotation deletes an annotation by id.
func (ms *MarkerStore) RemoveAnnotation(id string) error {
	if _, ok := ms.annotations[id]; !ok {
		return fmt.Errorf("annotation %s: %w", id, domain.ErrNotFound)
	}
	delete(ms.annotations, id)
	ms.annotationOrder = removeID(ms.annotationOrder, id)
	return nil
}

// AddSegment validates start <= end and stores the segment. Overlap with
// other segments is permitted.
func (ms *MarkerStore) AddSegment(spec domain.SegmentSpec) (*domain.Segment, error) {
	if spec.StartTs > spec.EndTs {
		return nil, fmt.Errorf("segment start %d after end %d: %w", spec.StartTs, spec.EndTs, domain.ErrInvalidRange)
	}
	seg := &domain.Segment{
		SegmentID: "sg_" + uuid.New().String()[:8],
		Title:     spec.Title,
		StartTs:   spec.StartTs,
		EndTs:     spec.EndTs,
		Color:     spec.Color,
		CreatedAt: time.Now(),
	}
	ms.segments[seg.SegmentID] = seg
	ms.segmentOrder = append(ms.segmentOrder, seg.SegmentID)
	return seg, nil
}

// GetSegment returns a segment by id.
func (ms *MarkerStore) GetSegment(id string) (*domain.Segment, error) {
	seg, ok := ms.segments[id]
	if !ok {
		return nil, fmt.Errorf("segment %s: %w", id, domain.ErrNotFound)
	}
	return seg, nil
}

// UpdateSegment applies the non-nil fields of the patch, re-validating
// the range.
func (ms *MarkerStore) UpdateSegment(id string, patch domain.SegmentPatch) (*domain.Segment, error) {
	seg, ok := ms.segments[id]
	if !ok {
		return nil, fmt.Errorf("segment %s: %w", id, domain.ErrNotFound)
	}
	start, end := seg.StartTs, seg.EndTs
	if patch.StartTs != nil {
		start = *patch.StartTs
	}
	if patch.EndTs != nil {
		end = *patch.EndTs
	}
	if start > end {
		return nil, fmt.Errorf("segment start %d after end %d: %w", start, end, domain.ErrInvalidRange)
	}
	seg.StartTs, seg.EndTs = start, end
	if patch.Title != nil {
		seg.Title = *patch.Title
	}
	if patch.Color != nil {
		seg.Color = *patch.Color
	}
	return seg, nil
}

// RemoveSegment deletes a segment by id.
func (ms *MarkerStore) RemoveSegment(id string) error {
	if _, ok := ms.segments[id]; !ok {
		return fmt.Errorf("segment %s: %w", id, domain.ErrNotFound)
	}
	delete(ms.segments, id)
	ms.segmentOrder = removeID(ms.segmentOrder, id)
	return nil
}

// SegmentContains reports whether ts falls inside the segment's range.
func (ms *MarkerStore) SegmentContains(id string, ts int64) (bool, error) {
	seg, err := ms.GetSegment(id)
	if err != nil {
		return false, err
	}
	return seg.Contains(ts), nil
}

// Bookmarks lists bookmarks in creation order.
func (ms *MarkerStore) Bookmarks() []domain.Bookmark {
	out := make([]domain.Bookmark, 0, len(ms.bookmarkOrder))
	for _, id := range ms.bookmarkOrder {
		out = append(out, *ms.bookmarks[id])
	}
	return out
}

// Annotations lists annotations in creation order.
func (ms *MarkerStore) Annotations() []domain.Annotation {
	out := make([]domain.Annotation, 0, len(ms.annotationOrder))
	for _, id := range ms.annotationOrder {
		out = append(out, *ms.annotations[id])
	}
	return out
}

// Segments lists segments in creation order.
func (ms *MarkerStore) Segments() []domain.Segment {
	out := make([]domain.Segment, 0, len(ms.segmentOrder))
	for _, id := range ms.segmentOrder {
		out = append(out, *ms.segments[id])
	}
	return out
}

// Counts returns the marker counts for state snapshots.
func (ms *MarkerStore) Counts() (bookmarks, annotations, segments int) {
	return len(ms.bookmarks), len(ms.annotations), len(ms.segments)
}

func (ms *MarkerStore) resolveBookmarkIndex(index *int, ts *int64) (int, error) {
	n := ms.timeline.Len()
	switch {
	case index != nil:
		if *index < 0 || *index >= n {
			return 0, fmt.Errorf("bookmark index %d outside [0,%d): %w", *index, n, domain.ErrInvalidRange)
		}
		return *index, nil
	case ts != nil:
		if err := ms.checkSpan(*ts); err != nil {
			return 0, err
		}
		return ms.nearestIndex(*ts), nil
	}
	return 0, fmt.Errorf("bookmark needs an index or a timestamp: %w", domain.ErrInvalidRange)
}

// nearestIndex returns the index of the event closest in time to ts,
// ties broken toward the earlier index. Callers validate span first.
func (ms *MarkerStore) nearestIndex(ts int64) int {
	events := ms.timeline.Events
	i := sort.Search(len(events), func(i int) bool { return events[i].Ts >= ts })
	if i == 0 {
		return 0
	}
	if i == len(events) {
		return len(events) - 1
	}
	before, after := events[i-1], events[i]
	if ts-before.Ts <= after.Ts-ts {
		return i - 1
	}
	return i
}

func (ms *MarkerStore) checkSpan(ts int64) error {
	start, end, ok := ms.timeline.Span()
	if !ok {
		return fmt.Errorf("timeline is empty: %w", domain.ErrInvalidRange)
	}
	if ts < start || ts > end {
		return fmt.Errorf("ts %d outside timeline span [%d,%d]: %w", ts, start, end, domain.ErrInvalidRange)
	}
	return nil
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// Package section maps an ordered list of conversation rows onto the
// positions of the list view: optional search and favorites banners, pinned
// rows, "today" and "earlier" date headers, the rows themselves and a
// trailing count slot.
//
// A Layout is computed from scratch on every refresh and holds no reference
// to the rows it was built from.
package section

import (
	"sort"
	"time"
)

// Rows is the ordered input. Rows must already be sorted: pinned first then
// newest first outside search mode, newest first inside it.
type Rows interface {
	Len() int
	Pinned(i int) bool
	SortTime(i int) time.Time
}

// Row is a plain row for callers that do not have their own Rows type.
type Row struct {
	Pinned bool
	Time   time.Time
}

// SliceRows adapts a slice to Rows.
type SliceRows []Row

func (s SliceRows) Len() int                 { return len(s) }
func (s SliceRows) Pinned(i int) bool        { return s[i].Pinned }
func (s SliceRows) SortTime(i int) time.Time { return s[i].Time }

// Options carries the state that shapes the layout besides the rows.
type Options struct {
	HasFavorites        bool
	SearchMode          bool
	SearchBannerVisible bool
	// Now and Location decide what "today" means. Zero values use the
	// current time and time.Local.
	Now      time.Time
	Location *time.Location
}

// Kind identifies what occupies a position.
type Kind int

const (
	KindRow Kind = iota
	KindSearchBanner
	KindFavorites
	KindHeaderToday
	KindHeaderEarlier
	KindCount
)

func (k Kind) String() string {
	switch k {
	case KindRow:
		return "row"
	case KindSearchBanner:
		return "search_banner"
	case KindFavorites:
		return "favorites"
	case KindHeaderToday:
		return "header_today"
	case KindHeaderEarlier:
		return "header_earlier"
	case KindCount:
		return "count"
	default:
		return "unknown"
	}
}

// IsHeader reports whether k is a date header.
func (k Kind) IsHeader() bool {
	return k == KindHeaderToday || k == KindHeaderEarlier
}

// Section is a date header inserted before FirstRow.
type Section struct {
	FirstRow int
	Position int
	Kind     Kind
}

// Item is what occupies one position. RowIndex is -1 unless Kind is KindRow.
type Item struct {
	Kind     Kind
	RowIndex int
}

// Layout is the computed position mapping.
type Layout struct {
	rows         int
	valid        bool
	searchBanner bool
	favorites    bool
	lead         int
	sections     []Section
	pinnedLast   int
	todayLast    int
}

// Compute builds the layout for rows. A nil rows value means no data has
// loaded yet: only the favorites banner is laid out, with no search banner
// and no count slot.
func Compute(rows Rows, opts Options) *Layout {
	l := &Layout{
		favorites:  opts.HasFavorites,
		pinnedLast: -1,
		todayLast:  -1,
	}
	if l.favorites {
		l.lead++
	}
	if rows == nil {
		return l
	}
	l.valid = true
	if opts.SearchBannerVisible {
		l.searchBanner = true
		l.lead++
	}
	l.rows = rows.Len()

	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.In(loc)
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	offset := l.lead
	todayOpen := false
	for i := 0; i < l.rows; i++ {
		if !opts.SearchMode && rows.Pinned(i) {
			l.pinnedLast = i
			continue
		}
		ts := rows.SortTime(i).In(loc)
		if ts.Before(startOfToday) {
			l.sections = append(l.sections, Section{FirstRow: i, Position: i + offset, Kind: KindHeaderEarlier})
			break
		}
		// Later-than-today timestamps are grouped with today.
		if !todayOpen {
			l.sections = append(l.sections, Section{FirstRow: i, Position: i + offset, Kind: KindHeaderToday})
			offset++
			todayOpen = true
		}
		l.todayLast = i
	}
	return l
}

// Count returns the number of positions.
func (l *Layout) Count() int {
	n := l.lead + l.rows + len(l.sections)
	if l.valid {
		n++
	}
	return n
}

// RowCount returns the number of data rows.
func (l *Layout) RowCount() int { return l.rows }

// Sections returns the date headers in position order.
func (l *Layout) Sections() []Section {
	out := make([]Section, len(l.sections))
	copy(out, l.sections)
	return out
}

// PinnedLastIndex is the row index of the last pinned row, or -1. It is
// always -1 in search mode.
func (l *Layout) PinnedLastIndex() int { return l.pinnedLast }

// TodayLastIndex is the row index of the last row under the today header,
// or -1.
func (l *Layout) TodayLastIndex() int { return l.todayLast }

// SearchBannerPosition returns the search banner position, or -1.
func (l *Layout) SearchBannerPosition() int {
	if !l.searchBanner {
		return -1
	}
	return 0
}

// FavoritesPosition returns the favorites banner position, or -1.
func (l *Layout) FavoritesPosition() int {
	if !l.favorites {
		return -1
	}
	if l.searchBanner {
		return 1
	}
	return 0
}

// CountPosition returns the trailing count slot position, or -1.
func (l *Layout) CountPosition() int {
	if !l.valid {
		return -1
	}
	return l.Count() - 1
}

func (l *Layout) sectionAt(pos int) (Section, bool) {
	i := sort.Search(len(l.sections), func(i int) bool { return l.sections[i].Position >= pos })
	if i < len(l.sections) && l.sections[i].Position == pos {
		return l.sections[i], true
	}
	return Section{}, false
}

// Item returns what occupies pos. Out-of-range positions return a KindRow
// item with RowIndex -1.
func (l *Layout) Item(pos int) Item {
	switch {
	case pos < 0 || pos >= l.Count():
		return Item{Kind: KindRow, RowIndex: -1}
	case pos == l.SearchBannerPosition():
		return Item{Kind: KindSearchBanner, RowIndex: -1}
	case pos == l.FavoritesPosition():
		return Item{Kind: KindFavorites, RowIndex: -1}
	case pos == l.CountPosition():
		return Item{Kind: KindCount, RowIndex: -1}
	}
	if s, ok := l.sectionAt(pos); ok {
		return Item{Kind: s.Kind, RowIndex: -1}
	}
	return Item{Kind: KindRow, RowIndex: l.rowAt(pos)}
}

// rowAt maps a position known to hold a row back to its row index by
// removing every slot at or before it.
func (l *Layout) rowAt(pos int) int {
	before := sort.Search(len(l.sections), func(i int) bool { return l.sections[i].Position > pos })
	return pos - l.lead - before
}

// RowIndex returns the row at pos, or -1 when pos holds anything else.
func (l *Layout) RowIndex(pos int) int {
	return l.Item(pos).RowIndex
}

// PresentationIndex returns the position of row, or -1 if out of range.
func (l *Layout) PresentationIndex(row int) int {
	if row < 0 || row >= l.rows {
		return -1
	}
	headers := sort.Search(len(l.sections), func(i int) bool { return l.sections[i].FirstRow > row })
	return row + l.lead + headers
}

// RowDividerVisible reports whether the row at pos draws its trailing
// divider. The last pinned row and the last today row end their group and
// draw none.
func (l *Layout) RowDividerVisible(pos int) bool {
	row := l.RowIndex(pos)
	if row < 0 {
		return false
	}
	return row != l.todayLast && row != l.pinnedLast
}

// HeaderDividerVisible reports whether the header at pos draws its leading
// divider. The first header has nothing above it to separate from unless a
// favorites banner or pinned rows precede it.
func (l *Layout) HeaderDividerVisible(pos int) bool {
	s, ok := l.sectionAt(pos)
	if !ok {
		return false
	}
	first := s.Position == l.sections[0].Position
	return !(first && !l.favorites && l.pinnedLast == -1)
}

// FavoritesDividerVisible reports whether the favorites banner draws its
// divider, which separates it from pinned rows.
func (l *Layout) FavoritesDividerVisible() bool {
	return l.favorites && l.pinnedLast != -1
}

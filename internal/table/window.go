package table

// Window is the pagination state of the table. Index is zero-based; the UI
// shows one-based page numbers.
type Window struct {
	Index         int
	PageSize      int
	TotalElements int
}

// NewWindow builds a window from a one-based UI page and clamps it into range.
func NewWindow(uiPage, pageSize, totalElements int) Window {
	w := Window{Index: IndexFromUIPage(uiPage), PageSize: pageSize, TotalElements: totalElements}
	return w.Clamp()
}

// IndexFromUIPage converts a one-based page number to a zero-based index.
func IndexFromUIPage(uiPage int) int {
	if uiPage < 1 {
		return 0
	}
	return uiPage - 1
}

// UIPage is the one-based page number shown to the user.
func (w Window) UIPage() int {
	return w.Index + 1
}

// TotalPages is ceil(TotalElements / PageSize).
func (w Window) TotalPages() int {
	if w.PageSize <= 0 || w.TotalElements <= 0 {
		return 0
	}
	return (w.TotalElements + w.PageSize - 1) / w.PageSize
}

// Clamp moves an out-of-range index onto the last page.
func (w Window) Clamp() Window {
	if w.Index < 0 {
		w.Index = 0
	}
	if pages := w.TotalPages(); pages == 0 {
		w.Index = 0
	} else if w.Index >= pages {
		w.Index = pages - 1
	}
	return w
}

func (w Window) HasPrev() bool {
	return w.Index > 0
}

func (w Window) HasNext() bool {
	return w.Index+1 < w.TotalPages()
}

// Pages lists the one-based page numbers for navigation links.
func (w Window) Pages() []int {
	total := w.TotalPages()
	out := make([]int, total)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// FirstItem and LastItem are the one-based positions of the rows on this page.
func (w Window) FirstItem() int {
	if w.TotalElements == 0 {
		return 0
	}
	return w.Index*w.PageSize + 1
}

func (w Window) LastItem() int {
	last := (w.Index + 1) * w.PageSize
	if last > w.TotalElements {
		last = w.TotalElements
	}
	return last
}

// Page slices the ordered records for a zero-based page index.
func Page[T any](ordered []T, index, pageSize int) []T {
	if pageSize <= 0 || index < 0 {
		return nil
	}
	start := index * pageSize
	if start >= len(ordered) {
		return []T{}
	}
	end := start + pageSize
	if end > len(ordered) {
		end = len(ordered)
	}
	return ordered[start:end]
}

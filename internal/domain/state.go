package domain

// Panel identifies which edit panel is active in the editor chrome.
type Panel string

const (
	PanelContent Panel = "content"
	PanelStyle   Panel = "style"
)

// Viewport is a named preview profile constraining visible width/height.
type Viewport struct {
	Name   string  `json:"name" toml:"name"`
	Width  float64 `json:"width" toml:"width"`
	Height float64 `json:"height" toml:"height"`
}

// DefaultViewports are used when no profiles are configured.
var DefaultViewports = []Viewport{
	{Name: "mobile", Width: 360, Height: 640},
	{Name: "tablet", Width: 768, Height: 1024},
	{Name: "desktop", Width: 1280, Height: 800},
}

// UiState carries non-persisted session concerns.
type UiState struct {
	ItemSelector        *Selector       `json:"itemSelector"`
	Viewport            string          `json:"viewport"`
	LeftSideBarVisible  bool            `json:"leftSideBarVisible"`
	RightSideBarVisible bool            `json:"rightSideBarVisible"`
	IsDragging          bool            `json:"isDragging"`
	ZoneCollapsed       map[ZoneID]bool `json:"zoneCollapsed"`
	SearchText          string          `json:"searchText"`
	ActivePanel         Panel           `json:"activePanel"`
}

// DefaultUiState is the UI state of a fresh session.
func DefaultUiState() UiState {
	return UiState{
		Viewport:            "desktop",
		LeftSideBarVisible:  true,
		RightSideBarVisible: true,
		ZoneCollapsed:       map[ZoneID]bool{},
		ActivePanel:         PanelContent,
	}
}

// UiPatch is a partial UiState. Nil fields are left unchanged.
type UiPatch struct {
	ItemSelector        **Selector      `json:"-"`
	Viewport            *string         `json:"viewport,omitempty"`
	LeftSideBarVisible  *bool           `json:"leftSideBarVisible,omitempty"`
	RightSideBarVisible *bool           `json:"rightSideBarVisible,omitempty"`
	IsDragging          *bool           `json:"isDragging,omitempty"`
	ZoneCollapsed       map[ZoneID]bool `json:"zoneCollapsed,omitempty"`
	SearchText          *string         `json:"searchText,omitempty"`
	ActivePanel         *Panel          `json:"activePanel,omitempty"`
}

// Apply returns u with the patch applied. ZoneCollapsed entries are merged.
func (p UiPatch) Apply(u UiState) UiState {
	if p.ItemSelector != nil {
		u.ItemSelector = *p.ItemSelector
	}
	if p.Viewport != nil {
		u.Viewport = *p.Viewport
	}
	if p.LeftSideBarVisible != nil {
		u.LeftSideBarVisible = *p.LeftSideBarVisible
	}
	if p.RightSideBarVisible != nil {
		u.RightSideBarVisible = *p.RightSideBarVisible
	}
	if p.IsDragging != nil {
		u.IsDragging = *p.IsDragging
	}
	if len(p.ZoneCollapsed) > 0 {
		merged := make(map[ZoneID]bool, len(u.ZoneCollapsed)+len(p.ZoneCollapsed))
		for k, v := range u.ZoneCollapsed {
			merged[k] = v
		}
		for k, v := range p.ZoneCollapsed {
			merged[k] = v
		}
		u.ZoneCollapsed = merged
	}
	if p.SearchText != nil {
		u.SearchText = *p.SearchText
	}
	if p.ActivePanel != nil {
		u.ActivePanel = *p.ActivePanel
	}
	return u
}

// Select builds a patch that sets the item selector (nil clears it).
func Select(sel *Selector) UiPatch {
	return UiPatch{ItemSelector: &sel}
}

// AppState is the single owned value threaded through the reducer.
type AppState struct {
	Data Document `json:"data"`
	UI   UiState  `json:"ui"`
}

// Preferences is the persisted subset of UiState restored at startup.
type Preferences struct {
	Viewport            string `json:"viewport"`
	LeftSideBarVisible  bool   `json:"leftSideBarVisible"`
	RightSideBarVisible bool   `json:"rightSideBarVisible"`
}

// Patch converts preferences into a UiPatch.
func (p Preferences) Patch() UiPatch {
	patch := UiPatch{
		LeftSideBarVisible:  &p.LeftSideBarVisible,
		RightSideBarVisible: &p.RightSideBarVisible,
	}
	if p.Viewport != "" {
		patch.Viewport = &p.Viewport
	}
	return patch
}

// PreferencesOf extracts the persisted subset of u.
func PreferencesOf(u UiState) Preferences {
	return Preferences{
		Viewport:            u.Viewport,
		LeftSideBarVisible:  u.LeftSideBarVisible,
		RightSideBarVisible: u.RightSideBarVisible,
	}
}

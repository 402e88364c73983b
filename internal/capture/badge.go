package capture

import "strconv"

// DefaultBadgeColor is the badge background used when none is configured.
const DefaultBadgeColor = "#1ba1e2"

// BadgeText renders a capture count for display: blank for zero.
func BadgeText(count int) string {
	if count <= 0 {
		return ""
	}
	return strconv.Itoa(count)
}

// ProjectBadge computes the badge for the given active tab. When no active
// tab could be resolved the whole log is counted.
func ProjectBadge(s State, activeTab int, found bool) Badge {
	if !s.Settings.IsEnabled {
		return Badge{}
	}
	if !s.Settings.ShowBadge {
		return Badge{Color: s.BadgeColor}
	}

	count := s.Log.Len()
	if found {
		count = s.Log.CountTab(activeTab)
	}
	return Badge{Text: BadgeText(count), Color: s.BadgeColor}
}

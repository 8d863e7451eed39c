package cache

import "fmt"

// Named key constructors. Every producer and invalidator goes through these;
// a key shape change here is the only way key shapes change anywhere.

// ContentPageKey addresses the full key->item map of one content page.
func ContentPageKey(page string) string {
	return fmt.Sprintf("content:page:%s", page)
}

// ContentItemKey addresses a single content item.
func ContentItemKey(page, key string) string {
	return fmt.Sprintf("content:item:%s:%s", page, key)
}

// ContentPagePattern matches the page map and every item on the page.
func ContentPagePattern(page string) string {
	return fmt.Sprintf("content:*:%s*", page)
}

// WorkingHoursKey addresses an instructor's weekly working hours.
func WorkingHoursKey(instructorID string) string {
	return fmt.Sprintf("hours:%s", instructorID)
}

// AvailabilityKey addresses the computed open slots for one instructor day.
func AvailabilityKey(instructorID, date string) string {
	return fmt.Sprintf("availability:%s:%s", instructorID, date)
}

// AvailabilityPattern matches every cached availability window for an
// instructor. Used after a working-hours change touches all derived days.
func AvailabilityPattern(instructorID string) string {
	return fmt.Sprintf("availability:%s:*", instructorID)
}

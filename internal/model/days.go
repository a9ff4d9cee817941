package model

import "strings"

// DayNames lists weekdays in index order; index 0 is Monday.
var DayNames = [DaysInWeek]string{
	"Monday",
	"Tuesday",
	"Wednesday",
	"Thursday",
	"Friday",
	"Saturday",
	"Sunday",
}

// DayName returns the weekday name for index, or "" when out of range.
func DayName(index int) string {
	if CheckIndex(index) != nil {
		return ""
	}
	return DayNames[index]
}

// DayIndexByName is case-insensitive; it returns -1 for unknown names.
func DayIndexByName(name string) int {
	for i, n := range DayNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return i
		}
	}
	return -1
}

// QueueOptions returns the selectable queue numbers 1..poolSize.
func QueueOptions(poolSize int) []int {
	if poolSize <= 0 {
		poolSize = DefaultQueuePoolSize
	}
	opts := make([]int, poolSize)
	for i := range opts {
		opts[i] = i + 1
	}
	return opts
}

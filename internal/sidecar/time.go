package sidecar

import "time"

const timeLayout = time.RFC3339

func parseTimeLayout(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

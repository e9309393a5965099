package handler

import (
	"encoding/json"
	"strconv"
)

func jsonInt(v int64) string { return strconv.FormatInt(v, 10) }

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

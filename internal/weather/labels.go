package weather

import (
	"fmt"
	"math"
	"time"

	"github.com/kjstillabower/weather-moment-nft/internal/models"
)

// UnknownLabel is returned for weather codes outside the WMO table.
const UnknownLabel = "未知天气"

// labels maps WMO weather interpretation codes to display labels.
var labels = map[int]string{
	0:  "晴天",
	1:  "基本晴朗",
	2:  "部分多云",
	3:  "阴天",
	45: "雾",
	48: "雾凇",
	51: "小雨",
	53: "中雨",
	55: "大雨",
	56: "冻雨",
	57: "强冻雨",
	61: "小雨",
	63: "中雨",
	65: "大雨",
	66: "冻雨",
	67: "强冻雨",
	71: "小雪",
	73: "中雪",
	75: "大雪",
	77: "雪粒",
	80: "阵雨",
	81: "中阵雨",
	82: "强阵雨",
	85: "小阵雪",
	86: "大阵雪",
	95: "雷暴",
	96: "雷暴伴冰雹",
	99: "强雷暴伴冰雹",
}

// Label returns the display label for a WMO weather code.
func Label(code int) string {
	if l, ok := labels[code]; ok {
		return l
	}
	return UnknownLabel
}

// TimeOfDayAt buckets a local wall-clock time:
// [05,12) morning, [12,18) afternoon, [18,22) evening, otherwise night.
func TimeOfDayAt(t time.Time) models.TimeOfDay {
	h := t.Hour()
	switch {
	case h >= 5 && h < 12:
		return models.Morning
	case h >= 12 && h < 18:
		return models.Afternoon
	case h >= 18 && h < 22:
		return models.Evening
	default:
		return models.Night
	}
}

var zonesByOffset = map[int]string{
	8:  "Asia/Shanghai",
	9:  "Asia/Tokyo",
	0:  "UTC",
	-5: "America/New_York",
	-8: "America/Los_Angeles",
}

// EstimateTimezone approximates an IANA zone from longitude in 15 degree bands.
// Etc/GMT zones use inverted signs: UTC+3 is Etc/GMT-3.
func EstimateTimezone(longitude float64) string {
	offset := int(math.Round(longitude / 15))
	if z, ok := zonesByOffset[offset]; ok {
		return z
	}
	if offset >= 0 {
		return fmt.Sprintf("Etc/GMT-%d", offset)
	}
	return fmt.Sprintf("Etc/GMT+%d", -offset)
}

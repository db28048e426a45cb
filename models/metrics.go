package models

import "encoding/json"

// PlatformMetrics is the platform-specific metrics variant of a record.
type PlatformMetrics interface {
	Platform() string
}

// DouyinMetrics are commerce metrics reported for Douyin items.
type DouyinMetrics struct {
	SevenDaySales   float64         `json:"sevenDaySales"`
	CVR             float64         `json:"cvr"`
	CommissionRate  float64         `json:"commissionRate"`
	GPM             float64         `json:"gpm"`
	LivePeakUser    float64         `json:"livePeakUser"`
	AudienceGenders AudienceGenders `json:"audienceGenders"`
}

// AudienceGenders is a male/female audience split in percent.
type AudienceGenders struct {
	Male   float64 `json:"male"`
	Female float64 `json:"female"`
}

func (DouyinMetrics) Platform() string { return PlatformDouyin }

// XhsMetrics are note metrics reported for Xiaohongshu items.
type XhsMetrics struct {
	CESScore      float64       `json:"cesScore"`
	CollectRate   float64       `json:"collectRate"`
	InteractCount InteractCount `json:"interactCount"`
	ViralRate     float64       `json:"viralRate"`
	NoteType      string        `json:"noteType"` // "video" or "image"
	Keywords      []string      `json:"keywords"`
}

// InteractCount breaks down note interactions.
type InteractCount struct {
	Likes    float64 `json:"likes"`
	Collects float64 `json:"collects"`
	Comments float64 `json:"comments"`
	Shares   float64 `json:"shares"`
}

func (XhsMetrics) Platform() string { return PlatformXiaohongshu }

// WeChatMetrics are article metrics reported for WeChat items.
type WeChatMetrics struct {
	ReadCount        float64 `json:"readCount"`
	ForwardCount     float64 `json:"forwardCount"`
	FriendLikes      float64 `json:"friendLikes"`
	NewRankIndex     float64 `json:"newRankIndex"`
	EstimatedAdValue float64 `json:"estimatedAdValue"`
}

func (WeChatMetrics) Platform() string { return PlatformWeChat }

// GenericMetrics keeps the metrics object of platforms without a typed shape.
type GenericMetrics struct {
	PlatformID string
	Values     map[string]any
}

func (g GenericMetrics) Platform() string { return g.PlatformID }

// MarshalJSON emits the raw values object.
func (g GenericMetrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.Values)
}

// DecodePlatformMetrics decodes raw into the variant registered for platform.
func DecodePlatformMetrics(platform string, raw json.RawMessage) (PlatformMetrics, error) {
	switch platform {
	case PlatformDouyin, PlatformChanmama:
		var m DouyinMetrics
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	case PlatformXiaohongshu:
		var m XhsMetrics
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	case PlatformWeChat:
		var m WeChatMetrics
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		values := map[string]any{}
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, err
		}
		return GenericMetrics{PlatformID: platform, Values: values}, nil
	}
}

// MetricsShapeHint returns a JSON skeleton of the metrics variant for
// platform, used to steer the extraction prompt. Empty for generic platforms.
func MetricsShapeHint(platform string) string {
	var v any
	switch platform {
	case PlatformDouyin, PlatformChanmama:
		v = DouyinMetrics{}
	case PlatformXiaohongshu:
		v = XhsMetrics{NoteType: "video|image", Keywords: []string{}}
	case PlatformWeChat:
		v = WeChatMetrics{}
	default:
		return ""
	}
	b, _ := json.Marshal(v)
	return string(b)
}

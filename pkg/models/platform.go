// Package models holds the domain entities shared across the negotiation
// pipeline: platforms and deliverables, influencer roster rows, rate cards,
// campaigns, and the chat payloads.
package models

import (
	"fmt"
	"sort"
)

// Platform identifies the social platform an influencer publishes on.
type Platform string

// Supported platforms.
const (
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformYouTube   Platform = "youtube"
)

// IsValid checks if the platform is one of the supported values.
func (p Platform) IsValid() bool {
	switch p {
	case PlatformInstagram, PlatformTikTok, PlatformYouTube:
		return true
	default:
		return false
	}
}

// DeliverableType identifies a concrete piece of influencer content. Each
// type belongs to exactly one platform.
type DeliverableType string

// Supported deliverable types.
const (
	DeliverableInstagramPost      DeliverableType = "instagram_post"
	DeliverableInstagramStory     DeliverableType = "instagram_story"
	DeliverableInstagramReel      DeliverableType = "instagram_reel"
	DeliverableTikTokVideo        DeliverableType = "tiktok_video"
	DeliverableTikTokStory        DeliverableType = "tiktok_story"
	DeliverableYouTubeDedicated   DeliverableType = "youtube_dedicated"
	DeliverableYouTubeIntegration DeliverableType = "youtube_integration"
	DeliverableYouTubeShort       DeliverableType = "youtube_short"
)

// PlatformDeliverables is the authoritative platform → deliverable mapping.
// Deliverable construction validates against it.
var PlatformDeliverables = map[Platform][]DeliverableType{
	PlatformInstagram: {
		DeliverableInstagramPost,
		DeliverableInstagramStory,
		DeliverableInstagramReel,
	},
	PlatformTikTok: {
		DeliverableTikTokVideo,
		DeliverableTikTokStory,
	},
	PlatformYouTube: {
		DeliverableYouTubeDedicated,
		DeliverableYouTubeIntegration,
		DeliverableYouTubeShort,
	},
}

var deliverableNames = map[DeliverableType]string{
	DeliverableInstagramPost:      "Instagram post",
	DeliverableInstagramStory:     "Instagram story",
	DeliverableInstagramReel:      "Instagram reel",
	DeliverableTikTokVideo:        "TikTok video",
	DeliverableTikTokStory:        "TikTok story",
	DeliverableYouTubeDedicated:   "dedicated YouTube video",
	DeliverableYouTubeIntegration: "YouTube integration",
	DeliverableYouTubeShort:       "YouTube Short",
}

// IsValid checks if the deliverable type is one of the supported values.
func (d DeliverableType) IsValid() bool {
	_, ok := deliverableNames[d]
	return ok
}

// Platform returns the platform this deliverable type belongs to.
func (d DeliverableType) Platform() Platform {
	for platform, types := range PlatformDeliverables {
		for _, t := range types {
			if t == d {
				return platform
			}
		}
	}
	return ""
}

// DisplayName returns the human phrasing used in email bodies and chat
// payloads ("Instagram reel", "dedicated YouTube video").
func (d DeliverableType) DisplayName() string {
	if name, ok := deliverableNames[d]; ok {
		return name
	}
	return string(d)
}

// AllDeliverableTypes returns every supported deliverable type, sorted.
func AllDeliverableTypes() []DeliverableType {
	out := make([]DeliverableType, 0, len(deliverableNames))
	for d := range deliverableNames {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Deliverable pairs a platform with a deliverable type. Immutable once built.
type Deliverable struct {
	Platform Platform        `json:"platform"`
	Type     DeliverableType `json:"deliverable_type"`
}

// NewDeliverable validates that the type belongs to the platform.
func NewDeliverable(platform Platform, typ DeliverableType) (Deliverable, error) {
	if !platform.IsValid() {
		return Deliverable{}, fmt.Errorf("unknown platform %q", platform)
	}
	for _, t := range PlatformDeliverables[platform] {
		if t == typ {
			return Deliverable{Platform: platform, Type: typ}, nil
		}
	}
	return Deliverable{}, fmt.Errorf("deliverable type %q does not belong to platform %q", typ, platform)
}

package automation

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// TrackingPixelURL generates a tracking pixel URL for email opens
func TrackingPixelURL(baseURL, messageID string) string {
	token := trackingToken(messageID)
	return fmt.Sprintf("%s/track/open/%s/%s", baseURL, messageID, token)
}

// ClickTrackURL generates a tracked URL for a link
func ClickTrackURL(baseURL, messageID, originalURL string) string {
	token := trackingToken(messageID)
	encodedURL := url.QueryEscape(originalURL)
	return fmt.Sprintf("%s/track/click/%s/%s?url=%s", baseURL, messageID, token, encodedURL)
}

// InjectTracking adds an open pixel and rewrites links through the
// click tracker. Opens and clicks land in the delivery log, where they
// keep counting toward the sender's usage windows.
func InjectTracking(htmlContent, baseURL, messageID string) string {
	pixelURL := TrackingPixelURL(baseURL, messageID)
	trackingPixel := fmt.Sprintf(`<img src="%s" alt="" width="1" height="1" style="display:none">`, pixelURL)

	modifiedHTML := injectClickTracking(htmlContent, baseURL, messageID)

	return modifiedHTML + trackingPixel
}

func injectClickTracking(html, baseURL, messageID string) string {
	// Simplified scan; an HTML parser would be overkill for the
	// templates the product generates.
	startTag := "<a href=\""
	endTag := "\""
	offset := 0

	for {
		startIdx := strings.Index(html[offset:], startTag)
		if startIdx == -1 {
			break
		}
		startIdx += offset + len(startTag)

		endIdx := strings.Index(html[startIdx:], endTag)
		if endIdx == -1 {
			break
		}
		endIdx += startIdx

		originalURL := html[startIdx:endIdx]
		trackedURL := ClickTrackURL(baseURL, messageID, originalURL)

		html = html[:startIdx] + trackedURL + html[endIdx:]
		offset = startIdx + len(trackedURL)
	}

	return html
}

func trackingToken(messageID string) string {
	hash := sha256.Sum256([]byte(uuid.New().String() + messageID))
	return base64.URLEncoding.EncodeToString(hash[:])[:20]
}

package access

import "fmt"

const fallbackName = "A member"

func requestedText(requester string) string {
	return fmt.Sprintf("🔒 %s requested access to your private photos. Go to your pending requests to approve or deny.", requester)
}

func approvedText(target string) string {
	return fmt.Sprintf("✅ %s approved your private photo access request! You can now view their private photos for 72 hours.", target)
}

func deniedText(target string) string {
	return fmt.Sprintf("❌ %s denied your private photo access request.", target)
}

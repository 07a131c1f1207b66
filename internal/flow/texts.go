package flow

import "chatagent/internal/conversation"

// User-facing replies
const (
	TextLoginInProgress  = "You are already logging in, please wait for finishing login process."
	TextAskPhone         = "Please provide your phone number with country code (e.g., +1234567890)."
	TextAskCode          = "Please provide the code you received."
	TextLoginFailed      = "Something went wrong, please try again later or type /login again"
	TextLoginSucceeded   = "You have successfully logged in"
	TextInvalidCode      = "Invalid code, please try again with /login command."
	TextTwoFactor        = "You have Two-Factor enabled, this bot not support login with Two-Factor. Please create application to login with it or disable it."
	TextUnknownPhone     = "This number is not linked to your Telegram account yet. Share your contact with me and type /login again."
	TextLoginExpired     = "Login timed out, please type /login again."
	TextAskThumbnail     = "Please send me your new thumbnail"
	TextThumbnailUpdated = "Thumbnail has been updated"
	TextNoThumbnail      = "No photo received, thumbnail not changed."
	TextAskReplacement   = "Please send me the word you want to replace (old->new)"
	TextReplaced         = "Replaced '%s' with '%s'."
	TextInvalidFormat    = "Invalid format please use 'old->new' "
	TextAskDeletion      = "Please send me the word you want to delete"
	TextWordRemoved      = "'%s' word removed"
	TextInvalidWord      = "Invalid word"
	TextSettingsExpired  = "No answer received, settings unchanged."
	TextSettingsFailed   = "Error: could not save your settings, please try again."
	TextAskLinks         = "Please provide links separated by spaces:"
	TextTooManyLinks     = "You can only provide %d links in a batch"
	TextNoLinks          = "No links provided."
	TextBatchStarted     = "Joining %d links, type /cancelbatch to stop."
	TextBatchFinished    = "Batch finished, %d links joined successfully, %d failed."
	TextBatchCancelled   = "Batch operation was canceled, %d links joined successfully, %d failed, %d skipped."
	TextJobRunning       = "A batch operation is already running, type /cancelbatch to stop it."
	TextAskBroadcast     = "Please provide the broadcast message."
	TextNoBroadcast      = "Broadcast message was not provided"
	TextBroadcastStarted = "Broadcast started, type /cancelbatch to stop."
	TextBroadcastSent    = "Message sent to %d users with %d failed and total users %d."
	TextBroadcastStopped = "Broadcast was canceled, message sent to %d users with %d failed and total users %d."
	TextFlowBusy         = "Please finish the current %s first or type /cancel."
)

// Prompt returns the message that opens a flow
func Prompt(kind conversation.Kind, setting conversation.Setting) string {
	switch kind {
	case conversation.KindLogin:
		return TextAskPhone
	case conversation.KindSettings:
		switch setting {
		case conversation.SettingChangeThumbnail:
			return TextAskThumbnail
		case conversation.SettingReplaceWord:
			return TextAskReplacement
		case conversation.SettingDeleteWord:
			return TextAskDeletion
		}
	case conversation.KindBatch:
		return TextAskLinks
	case conversation.KindBroadcast:
		return TextAskBroadcast
	}
	return ""
}

// expiredText is sent when a flow of kind times out
func expiredText(kind conversation.Kind) string {
	switch kind {
	case conversation.KindLogin:
		return TextLoginExpired
	case conversation.KindSettings:
		return TextSettingsExpired
	case conversation.KindBatch:
		return TextNoLinks
	case conversation.KindBroadcast:
		return TextNoBroadcast
	}
	return ""
}

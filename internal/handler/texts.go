package handler

// Replies of the command and message handlers
const (
	TextWelcome          = "Welcome! Please Join Our Groups:"
	TextAlreadyLoggedIn  = "You are already logged in, type /logout to end the session."
	TextLoggedOut        = "You are now logged out."
	TextAlreadyLoggedOut = "You are already logout"
	TextLogoutFailed     = "Error during logout, try again."
	TextFlowCancelled    = "Your %s was cancelled."
	TextCancelled        = "Operation cancelled."
	TextNothingToCancel  = "There is nothing to cancel."
	TextJoinedLinks      = "Joined links successfully"
	TextJoinFailed       = "Error joining links : %s"
	TextNoJoinLinks      = "There are no links to join."
	TextSettingsMenu     = "Settings Menu:"
	TextCommandReceived  = "Command received!"
	TextBatchCancelled   = "Batch operation was canceled"
	TextNoBatch          = "There is no batch operation running."
	TextPhoneLinked      = "Phone number saved, you can now /login."
	TextForeignContact   = "Please share your own contact."
	TextInvalidContact   = "This contact has no valid phone number."
	TextContactFailed    = "Could not save your phone number, try again."
)

// ReactionReceived acknowledges /test
const ReactionReceived = "👍"

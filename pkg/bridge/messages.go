// Copyright 2024-2026 Aiku AI

package bridge

// User-visible replies.
const (
	msgStart = "Hi! I mirror messages between chats on different networks.\n" +
		"1. Run /token in the first chat.\n" +
		"2. Send the /connect command you get back in the second chat within an hour.\n" +
		"Use /list to see the connections of a chat and /disconnect to remove one."

	msgAdminRequired = "This command needs admin rights. Use /auth <password> to get them."

	msgAuthUsage    = "Usage: /auth <password>"
	msgAuthDisabled = "Authorization is disabled on this bridge, everyone can use all commands."
	msgAuthWrong    = "Wrong password."
	msgAuthOK       = "You are now an admin of this bridge."

	msgDeauthOK      = "Admin rights removed for %s."
	msgDeauthNothing = "%s had no stored admin rights."

	msgTokenCreated = "Send the following command in the chat you want to connect to this one. It is valid for one hour:"

	msgConnectUsage       = "Usage: /connect <token>"
	msgInvalidToken       = "This token is invalid. Run /token to get a new one."
	msgOutdatedToken      = "This key is outdated. Run /token to get a new one."
	msgSelfConnect        = "You can't connect a chat to itself. Send the /connect command in another chat."
	msgAlreadyConnected   = "These chats are already connected."
	msgConnectRace        = "Another /connect for these chats ran at the same time. Please try again."
	msgPeerUnreachable    = "I couldn't send a message to the other chat, so the connection was not created. Check that I can still write there."
	msgHandshakeNotice    = "Connecting this chat with %q..."
	msgConnectedWith      = "This chat is now connected with %q."
	msgNoConnections      = "This chat has no connections. Run /start to learn how to create one."
	msgConnectionsHeader  = "Connections of this chat:"
	msgDisconnectUsage    = "Usage: /disconnect <connection id>"
	msgInvalidConnection  = "%q is not a valid connection id."
	msgConnectionNotFound = "Connection not found."
	msgDisconnected       = "The connection with %q was removed."
	msgPendingRemoved     = "The pending connection was removed."

	msgInternalError = "Something went wrong. Please report error id %s to the bridge administrator."
)

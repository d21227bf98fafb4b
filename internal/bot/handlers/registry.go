package handlers

import (
	tgbot "github.com/go-telegram/bot"
)

// RegisteredHandler represents a command handler with its description and middleware.
// It encapsulates all information needed to register and document a command.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
	// MatchFunc, when set, replaces pattern matching.
	MatchFunc tgbot.MatchFunc
	// Description is shown in the Telegram command menu. Empty for
	// non-command handlers.
	Description string
}

// RegisterAllCommands initializes and returns a map of all available bot commands.
// It configures each command with appropriate handlers and middleware.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	handlers := make(map[string]RegisteredHandler)

	command := func(name, description string, h tgbot.HandlerFunc) {
		handlers["/"+name] = RegisteredHandler{
			HandlerType: tgbot.HandlerTypeMessageText,
			Pattern:     name,
			Handler:     h,
			MatchType:   tgbot.MatchTypeCommandStartOnly,
			Description: description,
		}
	}

	command("start", "Start the conversation", NewStartHandler(deps))
	command("help", "List available commands", NewHelpHandler(deps))
	command("websearch", "Search the web or preview a URL", NewWebSearchHandler(deps))
	command("generate_image", "Generate an image from a prompt", NewImageHandler(deps))
	command("translate", "Translate text to a language", NewTranslateHandler(deps))
	command("stop", "Stop the bot", NewStopHandler(deps))

	handlers["contact"] = RegisteredHandler{
		Handler:   NewContactHandler(deps),
		MatchFunc: IsContact,
	}
	handlers["upload"] = RegisteredHandler{
		Handler:   NewUploadHandler(deps),
		MatchFunc: IsUpload,
	}

	return handlers
}

package bot

import "strings"

type command struct {
	Name string
	Args string
}

// parseCommand splits "/name@bot args" into its parts. Mentions of other
// bots and plain text are not commands.
func parseCommand(text, botName string) (command, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return command{}, false
	}

	head, args, _ := strings.Cut(text, " ")
	name := strings.TrimPrefix(head, "/")
	if n, mention, ok := strings.Cut(name, "@"); ok {
		if botName != "" && !strings.EqualFold(mention, botName) {
			return command{}, false
		}
		name = n
	}
	if name == "" {
		return command{}, false
	}

	return command{
		Name: strings.ToLower(name),
		Args: strings.TrimSpace(args),
	}, true
}

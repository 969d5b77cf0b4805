package irc

// This file contains documentation for the IRC event handlers.
// The actual handler implementations are split across:
// - client.go: Connection lifecycle and channel/user tracking handlers
// - transport.go: Destination resolution used by the relay
// - commands.go: Operator command implementations

/*
Handler Summary:

Connection Events:
- 376/422 (onConnect): End of MOTD / MOTD missing - bot is connected
  - Forgets tracked state from any previous connection
  - Identifies to NickServ (unless SASL is used)
  - Joins the configured channels, with keys where given
- disconnect (onDisconnect): Marks the session unusable until reconnected
  - Drops tracked channels, users and admin sessions

Channel Tracking:
- JOIN (onJoin): Own joins add a channel, other joins add a member
- PART (onPart) / KICK (onKick): Own parts drop the channel
- QUIT (onQuit): Removes the user everywhere, ends their admin session
- NICK (onNick): Renames the user, ends their admin session
- 353 (onNames): RPL_NAMREPLY - Seeds channel membership
- 332 (onTopicReply) / TOPIC (onTopic): Remembers topics for !channels

Private Messages:
- PRIVMSG (onPrivMsg): "!" commands sent directly to the bot
  - !help, !version, !channels, !login, !logout
  - Admin only: !keys, !setkey, !delkey, !shutdown
  - Every command is recorded in stats.txt

Nick Issues:
- 433 (onNickInUse): ERR_NICKNAMEINUSE - Nick in use
  - Switches to alternate nick
  - Schedules GHOST and nick change

CTCP:
- CTCP_VERSION: Responds with version information
*/

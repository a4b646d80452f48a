// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package bridge implements the connection orchestrator of relaybridge.
//
// Provider adapters (Mattermost, Matrix, Telegram, Discord) publish every
// inbound message as an [Event]. The [Orchestrator] queues events and a pool
// of workers handles them: commands go through the dispatcher, everything
// else through the router.
//
// # Pairing
//
// Two conversations are connected with a token handshake. /token in the
// first chat creates a pending [Connection] and replies with a /connect
// command carrying [TokenMarker] and a random token. Sending that command in
// a second chat within [TokenTTL] completes the connection. Before the
// connection is stored the bridge sends a test message to the first chat;
// if that fails nothing is changed.
//
// # Routing
//
// Each completed connection has a [Direction]. A message is forwarded to the
// other side of every connection whose direction allows it. Routing is never
// transitive.
//
// # Admin gate
//
// /token, /list, /disconnect and /deauth need admin rights, checked by
// [Orchestrator.IsAdmin]. Senders become admins with /auth <password>, or
// implicitly when their provider reports a network admin role in the
// conversation.
package bridge

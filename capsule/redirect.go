/*
Copyright 2026 The Capsule Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package capsule

import (
	"fmt"
	"net"

	"github.com/coldwax/capsule/logger"
)

// ServeRedirect dials item's upstream authority, replays the already-read
// ClientHello bytes to it, and splices the connection until either side
// closes. It never sees a Gemini request: the whole point is that this
// capsule never terminates TLS for these names.
func ServeRedirect(item *RedirectItem, client net.Conn, clientHello []byte, log *logger.Logger) error {
	upstream, err := net.Dial("tcp", item.TargetAuthority)
	if err != nil {
		log.Errorf("redirect: failed to connect to %s: %v", item.TargetAuthority, err)
		return fmt.Errorf("capsule: redirect dial %s: %w", item.TargetAuthority, err)
	}
	defer upstream.Close()

	log.Accessf("Redirect to %s", item.TargetAuthority)

	if err := splice(client, upstream, clientHello); err != nil {
		log.Errorf("redirect: %v", err)
		return err
	}
	return nil
}

//go:build !windows

/***************************************************************
 *
 * Copyright (C) 2024, Pelican Project, Morgridge Institute for Research
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you
 * may not use this file except in compliance with the License.  You may
 * obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 ***************************************************************/

package config

import (
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DropPrivileges permanently drops the process to the given user, once all
// listening sockets and database handles have been opened.
func DropPrivileges(u User) error {
	if u.Uid == 0 {
		return errors.Errorf("unable to drop privileges to user (%s) with UID 0", u.Username)
	}
	if u.Gid == 0 {
		return errors.Errorf("unable to drop privileges to user (user %s, group %s) with GID 0", u.Username, u.Groupname)
	}
	log.Infof("Dropping privileges to user %s (uid %d, gid %d)", u.Username, u.Uid, u.Gid)
	if err := syscall.Setgid(u.Gid); err != nil {
		return errors.Wrap(err, "failed to drop group privileges")
	}
	if err := syscall.Setuid(u.Uid); err != nil {
		return errors.Wrap(err, "failed to drop user privileges")
	}
	return nil
}

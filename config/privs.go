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
	"math"
	"os/user"
	"strconv"

	"github.com/pkg/errors"
)

// User is the resolved identity of the OS account the daemon should run as.
type User struct {
	Uid       int
	Gid       int
	Username  string
	Groupname string
}

var isRootExec bool

func init() {
	u, err := user.Current()
	isRootExec = err == nil && u.Username == "root"
}

// IsRootExecution reports whether the current process started as root.
func IsRootExecution() bool {
	return isRootExec
}

// ResolveUser looks up the OS account named by the `user` configuration key.
// An empty name is only valid when the process did not start as root, in
// which case the daemon simply keeps running as its current account.
func ResolveUser(name string) (User, error) {
	if name == "" {
		if isRootExec {
			return User{}, errors.New("configuration is missing the \"user\" key and the daemon was started as root")
		}
		current, err := user.Current()
		if err != nil {
			return User{}, errors.Wrap(err, "failed to determine the current OS user")
		}
		name = current.Username
	}

	userObj, err := user.Lookup(name)
	if err != nil {
		return User{}, errors.Wrapf(err, "unable to look up the configured daemon user %q", name)
	}

	result := User{Username: userObj.Username}

	uid, err := strconv.ParseUint(userObj.Uid, 10, 32)
	if err != nil {
		return User{}, errors.Wrapf(err, "failed to parse uid %q for user %q", userObj.Uid, name)
	}
	if uid > math.MaxInt {
		return User{}, errors.Errorf("uid %d for user %q overflows on this platform", uid, name)
	}
	result.Uid = int(uid)

	gid, err := strconv.ParseUint(userObj.Gid, 10, 32)
	if err != nil {
		return User{}, errors.Wrapf(err, "failed to parse gid %q for user %q", userObj.Gid, name)
	}
	if gid > math.MaxInt {
		return User{}, errors.Errorf("gid %d for user %q overflows on this platform", gid, name)
	}
	result.Gid = int(gid)

	if groupObj, err := user.LookupGroupId(userObj.Gid); err == nil {
		result.Groupname = groupObj.Name
	} else {
		// CGO is frequently disabled, which breaks glibc/SSSD-backed group
		// lookups; the group name is only used for logging, so fall back to
		// the raw gid.
		result.Groupname = userObj.Gid
	}

	return result, nil
}

package fs

import (
	"strconv"

	"github.com/m-manu/sshpath/entity"
	"github.com/m-manu/sshpath/remote"
)

// Remote commands, as tokens for the remote shell. Operands are always quoted.

var statFormatArg = "--format='" + entity.StatFormat + "'"

func listCommand(dir string) []string {
	return []string{"ls", "-A", remote.Quote(dir)}
}

func statCommand(paths ...string) []string {
	tokens := make([]string, 0, 2+len(paths))
	tokens = append(tokens, "stat", statFormatArg)
	for _, p := range paths {
		tokens = append(tokens, remote.Quote(p))
	}
	return tokens
}

func findStatCommand(dir string) []string {
	return []string{"find", remote.Quote(dir), "-mindepth", "1", "-maxdepth", "1",
		"-exec", "stat", "--printf='" + entity.RecordFormat + "'", "{}", "+"}
}

func realpathCommand(p string) []string {
	return []string{"realpath", "--", remote.Quote(p)}
}

func mkdirCommand(p string) []string {
	return []string{"mkdir", "--", remote.Quote(p)}
}

func rmdirCommand(p string) []string {
	return []string{"rmdir", "--", remote.Quote(p)}
}

func unlinkCommand(p string) []string {
	return []string{"rm", "--", remote.Quote(p)}
}

func renameCommand(src, dst string) []string {
	return []string{"mv", "--", remote.Quote(src), remote.Quote(dst)}
}

func touchCommand(p string) []string {
	return []string{"touch", "--", remote.Quote(p)}
}

func setMtimeCommand(p string, epoch int64) []string {
	return []string{"touch", "-m", "-d", "@" + strconv.FormatInt(epoch, 10), "--", remote.Quote(p)}
}

func readableCommand(p string) []string {
	return []string{"test", "-r", remote.Quote(p)}
}

package usecase

import "os/exec"

func execFFmpeg(args ...string) (string, error) {
	out, err := exec.Command("ffmpeg", append([]string{"-hide_banner", "-y"}, args...)...).CombinedOutput()
	return string(out), err
}

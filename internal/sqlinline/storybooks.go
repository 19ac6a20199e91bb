package sqlinline

const QInsertStorybook = `--sql 8c588576-ce74-4cb7-b685-8e65eb03420c
insert into storybooks (user_id, title, prompt, image_url, pages, images, seed, created_at)
values ($1::uuid, $2, $3, nullif($4, ''), $5::jsonb, $6::jsonb, $7, now())
returning id::text, created_at;
`

const QSelectStorybooksByUser = `--sql b789ad2a-7021-46c3-89ce-0f59fb2128c1
select id::text, user_id::text, title, prompt, coalesce(image_url, ''), pages, images, seed, created_at
from storybooks
where user_id = $1::uuid
order by created_at desc;
`

const QSelectStorybookByID = `--sql 811d33e8-5e0c-4edd-912c-d46472681a64
select id::text, user_id::text, title, prompt, coalesce(image_url, ''), pages, images, seed, created_at
from storybooks
where id = $1::uuid and user_id = $2::uuid
limit 1;
`

const QDeleteStorybook = `--sql dc6dd20a-765b-4eef-bc1d-3661089c0425
delete from storybooks
where id = $1::uuid and user_id = $2::uuid
returning id::text, user_id::text, title, prompt, coalesce(image_url, ''), pages, images, seed, created_at;
`

const QDeleteStorybooksByUser = `--sql ef5f7ddf-bbb6-4174-9807-ffc46f8c43e6
delete from storybooks
where user_id = $1::uuid
returning id::text, user_id::text, title, prompt, coalesce(image_url, ''), pages, images, seed, created_at;
`
